// Retry classification
//
// By default every error is retried except those classified by the errors
// package as invalid (bad input, unknown names, type mismatches) or fatal.
// Setting Config.Retryable narrows this further:
//
//	cfg := retry.Quick()
//	cfg.Retryable = func(err error) bool { return errors.Is(err, errors.ErrNotFound) }
//	err := retry.Do(ctx, cfg, func() error {
//	    _, err := mgr.Connect(ctx, spec)
//	    return err
//	})
package retry
