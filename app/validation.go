package app

import (
	"errors"
	"sync"
	"time"

	"asset_lending_tool/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators 把自定义规则注册到 gin 的 validator 实例上
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("gin validator engine is not validator/v10")
			return
		}
		err = RegisterCustomValidations(v)
	})
	return err
}

func RegisterCustomValidations(v *validator.Validate) error {
	if err := v.RegisterValidation("loanstatus", isLoanStatus); err != nil {
		return err
	}
	if err := v.RegisterValidation("assetstatus", isAssetStatus); err != nil {
		return err
	}
	if err := v.RegisterValidation("future", isFuture); err != nil {
		return err
	}
	return nil
}

func isLoanStatus(fl validator.FieldLevel) bool {
	return models.LoanStatus(fl.Field().String()).Valid()
}

func isAssetStatus(fl validator.FieldLevel) bool {
	return models.AssetStatus(fl.Field().String()).Valid()
}

// time.Time / *time.Time 必须晚于当前时间
func isFuture(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	return t.After(time.Now())
}
