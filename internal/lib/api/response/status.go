package response

// HTTPStatus derives the transport status from a stable domain error code.
// Codes are built as status*1000+sequence (404016, 403002, ...).
func HTTPStatus(code int) int {
	status := code / 1000
	if status < 400 || status > 599 {
		return 400
	}
	return status
}
