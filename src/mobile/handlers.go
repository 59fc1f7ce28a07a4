package mobile

/*
These types are exported and need to be implemented and used by the mobile
application.
*/

//------------------------------------------------------------------------------

// DeliveryHandler receives every message delivered to the device, encoded in
// JSON.
type DeliveryHandler interface {
	OnDeliver(delivered string)
}

// ExceptionHandler receives the errors the bindings cannot return.
type ExceptionHandler interface {
	OnException(string)
}
