package patient

import (
	"strings"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/nin"
)

// Patient is unique by NIN. It is only ever removed through erasure.
type Patient struct {
	ID        int64
	NIN       string
	FirstName string
	LastName  string
	BirthDate time.Time
	Sex       nin.Sex
	Email     *string
	Phone     *string
	Address   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
