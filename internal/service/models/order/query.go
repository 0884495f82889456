package order

// QueryOrdersModel represents filter parameters for querying orders
type QueryOrdersModel struct {
	Ids           []string       `json:"ids,omitempty"`
	UserIds       []string       `json:"userIds,omitempty"`
	Status        *Status        `json:"status,omitempty"`
	PaymentStatus *PaymentStatus `json:"paymentStatus,omitempty"`
	Limit         int            `json:"limit,omitempty"`
	Offset        int            `json:"offset,omitempty"`
}
