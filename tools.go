//go:build tools

// Package friendchat tracks tool dependencies invoked through go generate.
package friendchat

import (
	_ "go.uber.org/mock/mockgen"
)
