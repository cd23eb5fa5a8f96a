package root

import (
	"github.com/vendica/vendica-platform/apps/cli/cmd/auth"
	"github.com/vendica/vendica-platform/apps/cli/cmd/bootstrap"
	"github.com/vendica/vendica-platform/apps/cli/cmd/store"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(store.Command())
}
