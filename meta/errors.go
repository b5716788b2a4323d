package meta

// A MalformedError reports that a fundamental field violates its format.
type MalformedError string

func (e MalformedError) Error() string {
	return "meta: malformed: " + string(e)
}

// A TruncatedError reports that the input ended before a structure completed.
type TruncatedError string

func (e TruncatedError) Error() string {
	return "meta: truncated: " + string(e)
}

// An UnsupportedError reports a valid but unimplemented feature.
type UnsupportedError string

func (e UnsupportedError) Error() string {
	return "meta: unsupported feature: " + string(e)
}
