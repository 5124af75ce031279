// Package programs registers the native programs shipped with the node.
package programs

import (
	"github.com/fortiblox/X1-Nimbus/pkg/programs/notary"
	"github.com/fortiblox/X1-Nimbus/pkg/programs/token"
	"github.com/fortiblox/X1-Nimbus/pkg/programs/vault"
	"github.com/fortiblox/X1-Nimbus/pkg/runtime"
)

// Register adds every native program to reg.
func Register(reg *runtime.Registry) error {
	all := map[string]runtime.Program{
		token.Kind:  token.Program(),
		vault.Kind:  vault.Program(),
		notary.Kind: notary.Program(),
	}
	for _, kind := range []string{token.Kind, vault.Kind, notary.Kind} {
		if err := reg.Register(kind, all[kind]); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the native programs.
func NewRegistry() *runtime.Registry {
	reg := runtime.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}
