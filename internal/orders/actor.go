package orders

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated caller of an order operation.
type Actor struct {
	ID    string
	Role  Role
	Name  string
	Email string
}

func (a Actor) IsStaff() bool { return a.Role == RoleStaff || a.Role == RoleAdmin }

// CanView reports whether a may read o. Staff see every order, customers only their own.
func CanView(a Actor, o Order) bool { return a.IsStaff() || o.CustomerID == a.ID }
