/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package main

import (
	"fmt"
	"os"
)

// eventprocessor entry
func main() {
	if err := bootstrap(); err != nil {
		fmt.Printf("bootstrap error %+v\n", err)
		os.Exit(1)
	}
}
