// Package handlers holds the gin HTTP handlers of the API.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"duxxan-platform/internal/chain"
	"duxxan-platform/internal/middleware"
	"duxxan-platform/internal/models"
	"duxxan-platform/internal/response"
	"duxxan-platform/internal/service"
)

var registerOnce sync.Once

// RegisterValidators adds the custom binding tags used by request structs
// and reports field names by their json tag.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("txhash", func(fl validator.FieldLevel) bool {
			return chain.TxHashPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("wallet", func(fl validator.FieldLevel) bool {
			return service.WalletPattern.MatchString(fl.Field().String())
		})
	})
}

// errorResponder maps domain errors onto HTTP statuses.
type errorResponder struct {
	log        *zap.Logger
	production bool
}

func (e errorResponder) respondError(c *gin.Context, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		response.ValidationFailed(c, []response.FieldError{{Field: ve.Field, Message: ve.Message}})
	case models.IsValidation(err):
		response.BadRequest(c, err.Error())
	case models.IsNotFound(err):
		response.NotFound(c, err.Error())
	case models.IsUnauthorized(err):
		response.Unauthorized(c, err.Error())
	case models.IsForbidden(err):
		response.Error(c, http.StatusForbidden, err.Error())
	case models.IsConflict(err):
		response.Error(c, http.StatusConflict, err.Error())
	case models.IsUnavailable(err):
		e.log.Warn("dependency unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		msg := models.ErrGateway.Error()
		if errors.Is(err, models.ErrCardPaymentsDisabled) {
			msg = models.ErrCardPaymentsDisabled.Error()
		}
		response.Error(c, http.StatusServiceUnavailable, msg)
	default:
		e.log.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
		if e.production {
			response.InternalError(c, "Internal server error")
			return
		}
		response.InternalError(c, err.Error())
	}
}

// bindJSON binds the body into req, writing a 400 and returning false on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]response.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, response.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
		response.ValidationFailed(c, fields)
		return false
	}

	response.BadRequest(c, "Invalid request body")
	return false
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "txhash":
		return "must be a 0x-prefixed 32 byte hex hash"
	case "wallet":
		return "must be a 0x-prefixed 20 byte hex address"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return fmt.Sprintf("failed on the '%s' rule", fe.Tag())
}

// paramID parses a positive numeric path parameter.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ValidationFailed(c, []response.FieldError{{Field: name, Message: "must be a positive integer"}})
		return 0, false
	}
	return id, true
}

// currentUser returns the wallet user set by the auth middleware.
func currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, models.ErrMissingWallet.Error())
		return nil, false
	}
	return user, true
}
