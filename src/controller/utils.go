package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"autotrader/src/model"
	"autotrader/src/repository"
)

// ServiceName tags every captured exception.
const ServiceName = "autotrader"

// Capture records a worker failure, logs it locally, and persists it when
// repo is set.
func Capture(
	ctx context.Context,
	repo *repository.ExceptionRepository,
	module string,
	method string,
	level string,
	err error,
	contextData map[string]interface{},
) *model.Exception {

	if err == nil {
		return nil
	}

	var ctxJSON datatypes.JSON
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = datatypes.JSON(b)
		}
	}

	exc := &model.Exception{
		Service:   ServiceName,
		Module:    module,
		Method:    method,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Level:     level,
		Context:   ctxJSON,
		CreatedAt: time.Now().UTC(),
	}

	logger.WithFields(map[string]interface{}{
		"service": ServiceName,
		"module":  module,
		"method":  method,
		"level":   level,
	}).WithError(err).Error("System exception captured")

	if repo != nil {
		// The caller's context may already be cancelled on shutdown.
		if e := repo.Create(context.WithoutCancel(ctx), exc); e != nil {
			logger.WithError(e).Error("Failed to persist exception")
		}
	}
	return exc
}

// CapturePanic turns a recovered panic value into a captured fatal exception.
func CapturePanic(ctx context.Context, repo *repository.ExceptionRepository, module, method string, recovered interface{}) *model.Exception {
	if recovered == nil {
		return nil
	}
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", recovered)
	}
	return Capture(ctx, repo, module, method, "fatal", err, nil)
}
