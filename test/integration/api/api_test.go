// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

//go:build integration

package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cropwise/cropwise/internal/share"
)

var clientSeq atomic.Int32

// apiClient is one browser: a cookie jar and a stable client address.
type apiClient struct {
	http *http.Client
	ip   string
}

func newClient() *apiClient {
	return &apiClient{
		http: env.client(),
		ip:   fmt.Sprintf("203.0.113.%d", clientSeq.Add(1)),
	}
}

func (c *apiClient) do(method, path string, body any) (int, map[string]any) {
	GinkgoHelper()
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+path, &buf)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", c.ip)

	resp, err := c.http.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	var out map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return resp.StatusCode, out
}

func signup(c *apiClient, username string) map[string]any {
	GinkgoHelper()
	status, body := c.do(http.MethodPost, "/api/auth/signup", map[string]any{
		"firstName":       "Meera",
		"lastName":        "Patil",
		"username":        username,
		"email":           username + "@example.com",
		"password":        "sowing-season-7",
		"confirmPassword": "sowing-season-7",
		"acceptTerms":     true,
	})
	Expect(status).To(Equal(http.StatusCreated), "%v", body)
	return body["user"].(map[string]any)
}

var _ = Describe("Accounts", func() {
	It("signs up, reads the session and logs out", func() {
		c := newClient()
		user := signup(c, "meera_p")
		Expect(user["email"]).To(Equal("meera_p@example.com"))

		status, body := c.do(http.MethodGet, "/api/auth/me", nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["user"]).To(HaveKeyWithValue("username", "meera_p"))

		status, _ = c.do(http.MethodPost, "/api/auth/logout", nil)
		Expect(status).To(Equal(http.StatusOK))

		status, _ = c.do(http.MethodGet, "/api/auth/me", nil)
		Expect(status).To(Equal(http.StatusUnauthorized))
	})

	It("rejects a duplicate email regardless of case", func() {
		signup(newClient(), "dup_one")

		status, body := newClient().do(http.MethodPost, "/api/auth/signup", map[string]any{
			"firstName": "Other", "lastName": "User", "username": "dup_two",
			"email": "DUP_ONE@example.com", "password": "sowing-season-7",
			"confirmPassword": "sowing-season-7", "acceptTerms": true,
		})
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(HaveKeyWithValue("field", "email"))
	})

	It("locks the account after five failures even for the right password", func() {
		owner := newClient()
		signup(owner, "locked_out")

		for i := range 5 {
			attacker := newClient()
			status, _ := attacker.do(http.MethodPost, "/api/auth/login", map[string]any{
				"email": "locked_out@example.com", "password": fmt.Sprintf("wrong-%d-guess", i),
			})
			Expect(status).To(Equal(http.StatusUnauthorized))
		}

		status, body := owner.do(http.MethodPost, "/api/auth/login", map[string]any{
			"email": "locked_out@example.com", "password": "sowing-season-7",
		})
		Expect(status).To(Equal(http.StatusLocked))
		Expect(body["error"]).To(ContainSubstring("temporarily locked"))
	})

	It("throttles repeated logins from one address", func() {
		c := newClient()
		for range 5 {
			status, _ := c.do(http.MethodPost, "/api/auth/login", map[string]any{
				"email": "nobody@example.com", "password": "irrelevant-1",
			})
			Expect(status).To(Equal(http.StatusUnauthorized))
		}
		status, _ := c.do(http.MethodPost, "/api/auth/login", map[string]any{
			"email": "nobody@example.com", "password": "irrelevant-1",
		})
		Expect(status).To(Equal(http.StatusTooManyRequests))
		Expect(testutil.ToFloat64(env.metrics.RateLimitRejections.WithLabelValues("login"))).To(BeNumerically(">=", 1))
	})
})

var _ = Describe("Profile and history", func() {
	It("records scans and recommendations and shows them newest first", func() {
		c := newClient()
		signup(c, "farmer_k")

		for _, disease := range []string{"Early Blight", "Late Blight"} {
			status, body := c.do(http.MethodPost, "/api/history/scans", map[string]any{
				"disease": disease, "confidence": 87.5, "severity": "Medium",
				"treatment": "Copper spray", "prevention": "Crop rotation",
				"imageUrl": "https://img.example.com/leaf.jpg",
			})
			Expect(status).To(Equal(http.StatusCreated), "%v", body)
			time.Sleep(5 * time.Millisecond)
		}
		status, _ := c.do(http.MethodPost, "/api/history/recommendations", map[string]any{
			"crop": "Millet", "best_season": "Kharif", "why_recommended": []string{"low rainfall"},
		})
		Expect(status).To(Equal(http.StatusCreated))

		status, _ = c.do(http.MethodPost, "/api/profile", map[string]any{"city": "Nashik", "phone": "9876543210"})
		Expect(status).To(Equal(http.StatusOK))

		status, body := c.do(http.MethodGet, "/api/profile", nil)
		Expect(status).To(Equal(http.StatusOK))
		profile := body["profile"].(map[string]any)
		Expect(profile).To(HaveKeyWithValue("city", "Nashik"))
		Expect(profile).To(HaveKeyWithValue("countryCode", "+91"))

		scans := profile["cropsScanned"].([]any)
		Expect(scans).To(HaveLen(2))
		Expect(scans[0]).To(HaveKeyWithValue("disease", "Late Blight"))

		recs := profile["cropsRecommended"].([]any)
		Expect(recs).To(HaveLen(1))
		Expect(recs[0]).To(HaveKeyWithValue("best_season", "Kharif"))
	})

	It("keeps each account's history separate", func() {
		a, b := newClient(), newClient()
		signup(a, "grower_a")
		signup(b, "grower_b")

		status, _ := a.do(http.MethodPost, "/api/history/recommendations", map[string]any{"crop": "Rice"})
		Expect(status).To(Equal(http.StatusCreated))

		_, body := b.do(http.MethodGet, "/api/profile", nil)
		Expect(body["profile"]).To(HaveKeyWithValue("cropsRecommended", BeEmpty()))
	})
})

var _ = Describe("Shared reports", func() {
	AfterEach(func() {
		env.skew.Store(0)
	})

	report := map[string]any{
		"disease": "Powdery Mildew", "confidence": 92, "severity": "High",
		"treatment": "Sulfur dust", "prevention": "Airflow",
		"imageUrl": "https://img.example.com/mildew.jpg",
	}

	It("creates a link anyone can read until it expires", func() {
		status, body := newClient().do(http.MethodPost, "/api/share", report)
		Expect(status).To(Equal(http.StatusOK), "%v", body)
		id := body["shareId"].(string)
		Expect(body["shareUrl"]).To(Equal("https://cropwise.test/shared/" + id))

		status, got := newClient().do(http.MethodGet, "/api/share/"+id, nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(got).To(HaveKeyWithValue("disease", "Powdery Mildew"))

		env.skew.Store(int64(share.DefaultTTL + time.Minute))
		status, _ = newClient().do(http.MethodGet, "/api/share/"+id, nil)
		Expect(status).To(Equal(http.StatusGone))
	})

	It("removes expired reports when swept", func() {
		_, body := newClient().do(http.MethodPost, "/api/share", report)
		id := body["shareId"].(string)

		janitor := share.NewJanitor(env.reports, time.Hour, nil)
		n, err := janitor.RunOnce(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeNumerically("==", 0), "fresh reports survive")

		// Expire the report in the database directly.
		_, err = env.pool.Exec(env.ctx, `UPDATE shared_reports SET expires_at = now() - interval '1 minute' WHERE id = $1`, id)
		Expect(err).NotTo(HaveOccurred())

		n, err = janitor.RunOnce(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeNumerically(">=", 1))

		status, _ := newClient().do(http.MethodGet, "/api/share/"+id, nil)
		Expect(status).To(Equal(http.StatusNotFound))
	})

	It("reports unknown ids as not found", func() {
		status, body := newClient().do(http.MethodGet, "/api/share/01ARZ3NDEKTSV4RRFFQ69G5FAV", nil)
		Expect(status).To(Equal(http.StatusNotFound))
		Expect(body).To(HaveKeyWithValue("error", "Report not found"))
	})
})
