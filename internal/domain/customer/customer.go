package customer

import "time"

// Customer is the borrower reference the loan engine reads at origination.
// Credit scores are owned by the customer records, never written here.
type Customer struct {
	CustomerID  int64     `json:"customerId"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
	CreditScore int       `json:"creditScore"`
	Active      bool      `json:"active"`
	CreateDate  time.Time `json:"createDate"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func NewCustomer(name, phone, address string, creditScore int) *Customer {
	now := time.Now()
	return &Customer{
		Name:        name,
		Phone:       phone,
		Address:     address,
		CreditScore: creditScore,
		Active:      true,
		CreateDate:  now,
		UpdatedAt:   now,
	}
}

// MeetsCreditScore reports whether the customer qualifies for a loan.
func (c *Customer) MeetsCreditScore(minimum int) bool {
	return c.CreditScore >= minimum
}
