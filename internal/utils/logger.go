// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"fprint-service/internal/config"
)

const defaultLogFile = "./logs/fprint-service.log"

// NewLogger creates the process logger from configuration. Output is
// "stdout", "stderr" or a file path rotated by lumberjack.
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	sink, err := writeSyncer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create write syncer: %w", err)
	}

	core := zapcore.NewCore(encoder(cfg.Format), sink, level)
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

func encoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	ec.EncodeLevel = zapcore.LowercaseLevelEncoder
	ec.EncodeCaller = zapcore.ShortCallerEncoder

	if format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func writeSyncer(cfg *config.LoggingConfig) (zapcore.WriteSyncer, error) {
	switch cfg.Output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}

	path := cfg.Output
	if path == "" {
		path = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // days
		Compress:   cfg.Compress,
	}), nil
}

// DeviceLogger carries the identity of one open sensor
type DeviceLogger struct {
	*zap.Logger
	key string
}

// NewDeviceLogger creates a device-specific logger
func NewDeviceLogger(base *zap.Logger, key, driverName, devtype string) *DeviceLogger {
	return &DeviceLogger{
		Logger: base.With(
			zap.String("device", key),
			zap.String("driver", driverName),
			zap.String("devtype", devtype),
			zap.String("component", "device"),
		),
		key: key,
	}
}

// LogOperation logs the end of an enroll, verify or capture
func (dl *DeviceLogger) LogOperation(operation, sessionID string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("session_id", sessionID),
		zap.Duration("duration", duration),
		zap.Bool("success", err == nil),
	}

	if err != nil {
		dl.Error("Device operation failed", append(fields, zap.Error(err))...)
		return
	}
	dl.Info("Device operation completed", fields...)
}

// LogConnection logs open and close of the device
func (dl *DeviceLogger) LogConnection(action string, err error) {
	if err != nil {
		dl.Error("Device connection event", zap.String("action", action), zap.Error(err))
		return
	}
	dl.Info("Device connection event", zap.String("action", action))
}

// OperationLogger times one operation from Start to Success or Error
type OperationLogger struct {
	logger    *zap.Logger
	startTime time.Time
}

// NewOperationLogger creates an operation-specific logger
func NewOperationLogger(base *zap.Logger, operation, id string) *OperationLogger {
	return &OperationLogger{
		logger: base.With(
			zap.String("operation", operation),
			zap.String("operation_id", id),
			zap.String("component", "operation"),
		),
		startTime: time.Now(),
	}
}

func (ol *OperationLogger) Start(fields ...zap.Field) {
	ol.logger.Info("Operation started", append([]zap.Field{zap.Time("start_time", ol.startTime)}, fields...)...)
}

func (ol *OperationLogger) Success(fields ...zap.Field) {
	ol.logger.Info("Operation completed successfully",
		append([]zap.Field{zap.Duration("duration", time.Since(ol.startTime)), zap.Bool("success", true)}, fields...)...)
}

func (ol *OperationLogger) Error(err error, fields ...zap.Field) {
	ol.logger.Error("Operation failed",
		append([]zap.Field{zap.Duration("duration", time.Since(ol.startTime)), zap.Bool("success", false), zap.Error(err)}, fields...)...)
}

// Progress logs an intermediate step, e.g. an accepted enrollment stage
func (ol *OperationLogger) Progress(message string, done, total int, fields ...zap.Field) {
	ol.logger.Info(message, append([]zap.Field{
		zap.Int("done", done),
		zap.Int("total", total),
		zap.Duration("elapsed", time.Since(ol.startTime)),
	}, fields...)...)
}

// ServiceLogger provides service-level logging functionality
type ServiceLogger struct {
	*zap.Logger
	serviceName string
}

// NewServiceLogger creates a service-specific logger
func NewServiceLogger(base *zap.Logger, serviceName string) *ServiceLogger {
	return &ServiceLogger{
		Logger:      base.With(zap.String("service", serviceName), zap.String("component", "service")),
		serviceName: serviceName,
	}
}

// LogServiceStart logs service startup
func (sl *ServiceLogger) LogServiceStart(version string, cfg interface{}) {
	sl.Info("Service starting", zap.String("version", version), zap.Any("config", cfg))
}

// LogServiceStop logs service shutdown
func (sl *ServiceLogger) LogServiceStop(reason string) {
	sl.Info("Service stopping", zap.String("reason", reason))
}

// LogAPIRequest logs HTTP API requests, raising the level with the status
func (sl *ServiceLogger) LogAPIRequest(method, path, requestID, clientIP string, statusCode int, duration time.Duration) {
	level := zapcore.InfoLevel
	switch {
	case statusCode >= 500:
		level = zapcore.ErrorLevel
	case statusCode >= 400:
		level = zapcore.WarnLevel
	}

	if ce := sl.Check(level, "API request"); ce != nil {
		ce.Write(
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.String("client_ip", clientIP),
			zap.Int("status_code", statusCode),
			zap.Duration("duration", duration),
		)
	}
}

// AuditLogger records changes to the stored prints
type AuditLogger struct {
	logger *zap.Logger
}

// NewAuditLogger creates an audit-specific logger
func NewAuditLogger(base *zap.Logger) *AuditLogger {
	return &AuditLogger{logger: base.With(zap.String("component", "audit"))}
}

// LogPrintSaved records an enrollment written to the store
func (al *AuditLogger) LogPrintSaved(key, sessionID string) {
	al.logger.Info("Print saved",
		zap.String("print", key),
		zap.String("session_id", sessionID),
		zap.String("action", "save_print"),
	)
}

// LogPrintDeleted records a print removed from the store
func (al *AuditLogger) LogPrintDeleted(key string) {
	al.logger.Info("Print deleted",
		zap.String("print", key),
		zap.String("action", "delete_print"),
	)
}

// LogVerification records the decision of a verify
func (al *AuditLogger) LogVerification(key, sessionID, result string) {
	al.logger.Info("Print verified",
		zap.String("print", key),
		zap.String("session_id", sessionID),
		zap.String("result", result),
		zap.String("action", "verify_print"),
	)
}

// LoggerWithRequestID adds request ID to logger
func LoggerWithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}

func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
