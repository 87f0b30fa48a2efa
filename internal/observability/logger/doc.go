// Package logger provee un logger Zap singleton con scoping por contexto.
//
// Inicialización (una vez en main):
//
//	logger.Init(logger.Config{
//	    Env:   cfg.App.Env,   // "dev" o "prod"
//	    Level: cfg.Log.Level, // "debug", "info", "warn", "error"
//	})
//	defer logger.Sync()
//
// En controllers/services:
//
//	log := logger.From(ctx)
//	log.Info("email dispatched", logger.Provider(p), logger.Brand(b))
//
// Sin contexto se usa el singleton: logger.L().
package logger
