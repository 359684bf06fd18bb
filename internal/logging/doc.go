// Package logging provides structured logging on top of zap.
//
// Logger adds context-aware methods that attach trace and request
// correlation fields:
//
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRequestID(ctx, id)
//	logger.Info(ctx, "search served", zap.Int("hits", n))
//
// Console output goes through a redacting encoder: fields named like
// secrets are replaced and values matching the configured patterns are
// masked. Use Credential when logging secrets on purpose.
//
// Library packages take a plain *zap.Logger; Underlying hands one out.
//
// Sampling is level aware. Error and above are never sampled.
package logging
