// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

//go:build integration

package credentials_test

import (
	"time"

	. "github.com/onsi/gomega" //nolint:revive // gomega convention
)

func mustDate(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	Expect(err).NotTo(HaveOccurred())
	return d
}
