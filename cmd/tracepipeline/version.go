// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package main

import (
	"fmt"

	tracepipeline "github.com/kadirpekel/r4u-trace"
)

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(tracepipeline.GetVersion().String())
	return nil
}
