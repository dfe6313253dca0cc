package sync

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/matheus3301/roomchat/internal/fault"
)

// AIPrefix is the marker every outbound message must start with.
const AIPrefix = "@AI "

type draft struct {
	Content string `validate:"required,aiprefix"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("aiprefix", func(fl validator.FieldLevel) bool {
		return strings.HasPrefix(fl.Field().String(), AIPrefix)
	})
	return v
}

// ValidateDraft trims content and checks it is sendable. The returned string
// is what gets stored and sent.
func (e *Engine) ValidateDraft(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	err := e.validate.Struct(draft{Content: trimmed})
	if err == nil {
		return trimmed, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "", fault.Wrap(fault.Validation, "validate draft", err)
	}
	switch verrs[0].Tag() {
	case "required":
		return "", fault.New(fault.Validation, "validate draft", "message is empty")
	default:
		return "", fault.New(fault.Validation, "validate draft", "message must start with "+strings.TrimSpace(AIPrefix))
	}
}
