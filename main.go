// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import "github.com/bartdeboer/dashcam/cmd"

func main() {
	cmd.Execute()
}
