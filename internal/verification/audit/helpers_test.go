package audit

import (
	"time"

	"eudi-storefront/internal/verification/lifecycle"
	"eudi-storefront/internal/verification/store"
)

func testStore() lifecycle.Store {
	return store.NewInMemory(time.Hour)
}
