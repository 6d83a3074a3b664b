// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

//go:build tools
// +build tools

// Package main keeps the test stack in go.mod. Most of these are only
// imported behind the integration build tag.
package main

import (
	// Integration suites (test/integration/api, postgres repositories)
	_ "github.com/onsi/ginkgo/v2"
	_ "github.com/onsi/gomega"
	_ "github.com/testcontainers/testcontainers-go"
	_ "github.com/testcontainers/testcontainers-go/modules/postgres"

	// Unit tests
	_ "github.com/pashagolub/pgxmock/v4"
	_ "github.com/stretchr/testify/assert"
	_ "github.com/stretchr/testify/mock"
	_ "github.com/stretchr/testify/require"
	_ "go.uber.org/goleak"
)
