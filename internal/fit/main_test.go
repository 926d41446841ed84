// Public domain.

package fit_test

import (
	"os"
	"testing"

	"github.com/soniakeys/jointcal/internal/logging"
)

func TestMain(m *testing.M) {
	logging.ConfigureTests()
	os.Exit(m.Run())
}
