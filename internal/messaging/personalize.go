package messaging

import (
	"strings"

	"github.com/ibheelz/Todoalrojo-sub002/internal/store"
)

// personalize substitutes template placeholders with customer and operator
// values. Unknown placeholders are left as-is.
func personalize(template string, customer store.Customer, operator store.Operator) string {
	email := ""
	if customer.MasterEmail != nil {
		email = *customer.MasterEmail
	}
	phone := ""
	if customer.MasterPhone != nil {
		phone = *customer.MasterPhone
	}

	replacer := strings.NewReplacer(
		"{{customer_email}}", email,
		"{{customer_phone}}", phone,
		"{{operator_name}}", operator.Name,
		"{{operator_brand}}", operator.Brand,
	)
	return replacer.Replace(template)
}
