package handler

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"requisition-backend/internal/ledger"
	"requisition-backend/internal/logger"
	"requisition-backend/internal/middleware"
	"requisition-backend/internal/workflow"
	"requisition-backend/pkg/apperror"
	"requisition-backend/pkg/pagination"
	"requisition-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RegisterValidators installs the custom binding tags used by the request DTOs.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected binding validator engine")
	}

	// decimals are validated through their string form
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	rules := map[string]validator.Func{
		"decimal_gt0": func(fl validator.FieldLevel) bool {
			d, err := decimal.NewFromString(fl.Field().String())
			return err == nil && d.IsPositive() && ledger.FitsScale(d, ledger.QtyScale)
		},
		"decimal_gte0": func(fl validator.FieldLevel) bool {
			d, err := decimal.NewFromString(fl.Field().String())
			return err == nil && !d.IsNegative() && ledger.FitsScale(d, ledger.QtyScale)
		},
		"decimal_price": func(fl validator.FieldLevel) bool {
			d, err := decimal.NewFromString(fl.Field().String())
			return err == nil && !d.IsNegative() && ledger.FitsScale(d, ledger.PriceScale)
		},
		"review_level": func(fl validator.FieldLevel) bool {
			_, err := workflow.ParseLevel(fl.Field().String())
			return err == nil
		},
		"review_action": func(fl validator.FieldLevel) bool {
			_, err := workflow.ParseAction(fl.Field().String())
			return err == nil
		},
		"adjustment_direction": func(fl validator.FieldLevel) bool {
			_, err := ledger.ParseDirection(fl.Field().String())
			return err == nil
		},
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

// writeError renders err in the standard envelope. Internal failures are logged here,
// everything else is the caller's mistake and only logged at debug.
func writeError(c *gin.Context, err error) {
	resp := response.FromError(err)
	if apperror.KindOf(err) == apperror.KindInternal {
		logger.Error("[http] request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	} else {
		logger.Debug("[http] request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(resp.StatusCode, resp)
}

// bindJSON decodes the body into dst, answering 400 itself on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, bindError(err))
		return false
	}
	return true
}

func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Validation("invalid request payload: " + err.Error())
	}
	fields := make(map[string]any, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields[fe.Namespace()] = fe.Tag()
		msgs = append(msgs, fe.Field()+" failed '"+fe.Tag()+"'")
	}
	return apperror.New(apperror.KindValidation, "invalid request payload: "+strings.Join(msgs, "; "), fields)
}

// pathID parses a uuid path parameter.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		writeError(c, apperror.Validationf("invalid %s: %q is not a uuid", name, c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}

// queryTime parses an optional RFC3339 or YYYY-MM-DD query parameter.
func queryTime(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperror.Validationf("invalid %s format, expected RFC3339 or YYYY-MM-DD", name)
}

func currentUser(c *gin.Context) uuid.UUID {
	return middleware.UserID(c)
}

func paged(c *gin.Context, status int, data interface{}, p pagination.Params, total int64) {
	c.JSON(status, response.SuccessWithPagination(status, data, p, total))
}
