package errors

// ValidateNodeID checks that a declared node id is usable as an
// identifier. field names the offending location (e.g. "nodes[3].id") in
// the message.
//
// Only emptiness is checked; any other string is a valid ID. Edge
// endpoints are not node declarations and are not checked here.
func ValidateNodeID(field, id string) error {
	if id == "" {
		return New(ErrCodeInvalidPipeline, "%s: must not be empty", field)
	}
	return nil
}

// ValidateCount checks a collection size against a limit. A limit of zero
// or less disables the check.
func ValidateCount(what string, n, limit int) error {
	if limit > 0 && n > limit {
		return New(ErrCodePipelineTooLarge, "too many %s: %d (max %d)", what, n, limit)
	}
	return nil
}
