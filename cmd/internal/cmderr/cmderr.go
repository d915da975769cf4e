// Package cmderr distinguishes errors the sampler daemon raised on
// purpose from plain CLI usage errors, so the root command knows
// whether printing usage alongside the error message would help or just
// add noise.
package cmderr

// Err wraps an error the daemon raised deliberately (bad curve config,
// failed to bind the admin server, flow source unavailable) as opposed
// to a cobra/pflag parsing error.
type Err struct {
	Err error
}

func (e Err) Error() string {
	return e.Err.Error()
}

// Cause implements the github.com/pkg/errors causer interface.
func (e Err) Cause() error {
	return e.Err
}

// Unwrap implements the standard errors.Unwrap interface.
func (e Err) Unwrap() error {
	return e.Err
}
