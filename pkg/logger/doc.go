// Package logger builds *slog.Logger instances from functional options and
// injects request-scoped values from context.Context into every record.
//
// New picks a text or JSON handler, applies static attributes and wraps the
// result with LogHandlerDecorator, which runs the registered ContextExtractor
// callbacks on each Handle call.
//
// Attribute helpers in attr.go (Error, UserID, SubscriptionID, Action, Amount,
// Component, ...) keep key names consistent across the ledger, reconciler and
// sweep components.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(os.Getenv("APP_ENV"), "creditkit"),
//	    logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "tokens credited",
//	    logger.UserID(userID),
//	    logger.Action("subscription_credit"),
//	    logger.Amount(300),
//	)
//
// Error and Errors return an empty attribute for nil errors, so they can be
// passed unconditionally.
package logger
