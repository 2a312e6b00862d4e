// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

//go:build integration

package credentials_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"strings"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/lawdesk/lawdesk/internal/auth"
	"github.com/lawdesk/lawdesk/internal/httpapi"
)

const registration = `{
	"email": "anna@example.com",
	"username": "anna",
	"password": "correct-horse",
	"first_name": "Anna",
	"second_name": "Ivanova",
	"birth_date": "1991-02-03"
}`

type tokenBody struct {
	AccessToken string `json:"access_token"`
	Expires     int64  `json:"expires"`
}

type messageBody struct {
	Message string `json:"message"`
}

// client is a browser-like caller that keeps the refresh cookie.
type client struct {
	http *http.Client
}

func newClient() *client {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &client{http: &http.Client{Jar: jar}}
}

func (c *client) post(path, body string, headers ...string) *http.Response {
	req, err := http.NewRequest(http.MethodPost, env.api.URL+path, strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := c.http.Do(req)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(resp.Body.Close)
	return resp
}

func (c *client) get(path, bearer string) *http.Response {
	req, err := http.NewRequest(http.MethodGet, env.api.URL+path, nil)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Authorization", "Bearer "+bearer)
	resp, err := c.http.Do(req)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(resp.Body.Close)
	return resp
}

func (c *client) refreshCookie() string {
	req, err := http.NewRequest(http.MethodPost, env.api.URL+"/api/v1/auth/refresh", nil)
	Expect(err).NotTo(HaveOccurred())
	for _, ck := range c.http.Jar.Cookies(req.URL) {
		if ck.Name == httpapi.RefreshCookie {
			return ck.Value
		}
	}
	return ""
}

func decode[T any](resp *http.Response) T {
	var v T
	Expect(json.NewDecoder(resp.Body).Decode(&v)).To(Succeed())
	return v
}

var _ = Describe("Credential API", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		resetAccounts(ctx)
	})

	Describe("Registration", func() {
		It("creates the account and issues a session", func() {
			c := newClient()
			resp := c.post("/api/v1/auth/register", registration)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body := decode[tokenBody](resp)
			Expect(body.AccessToken).NotTo(BeEmpty())
			Expect(body.Expires).To(BeNumerically(">", 0))
			Expect(c.refreshCookie()).NotTo(BeEmpty())

			var passports, profiles, identities int
			Expect(env.pool.QueryRow(ctx, `SELECT count(*) FROM passports`).Scan(&passports)).To(Succeed())
			Expect(env.pool.QueryRow(ctx, `SELECT count(*) FROM user_profiles`).Scan(&profiles)).To(Succeed())
			Expect(env.pool.QueryRow(ctx, `SELECT count(*) FROM auth_data`).Scan(&identities)).To(Succeed())
			Expect([]int{passports, profiles, identities}).To(Equal([]int{1, 1, 1}))
		})

		It("rejects a duplicate login without leaving partial rows", func() {
			Expect(newClient().post("/api/v1/auth/register", registration).StatusCode).To(Equal(http.StatusOK))

			resp := newClient().post("/api/v1/auth/register", registration)
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			Expect(decode[messageBody](resp).Message).To(Equal("already_exists"))

			var passports int
			Expect(env.pool.QueryRow(ctx, `SELECT count(*) FROM passports`).Scan(&passports)).To(Succeed())
			Expect(passports).To(Equal(1))
		})

		It("rejects invalid input", func() {
			resp := newClient().post("/api/v1/auth/register", `{"email":"not-an-email"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decode[messageBody](resp).Message).To(Equal("invalid_data"))
		})
	})

	Describe("Authorization", func() {
		BeforeEach(func() {
			Expect(newClient().post("/api/v1/auth/register", registration).StatusCode).To(Equal(http.StatusOK))
		})

		DescribeTable("accepts either login",
			func(login string) {
				resp := newClient().post("/api/v1/auth", `{"email_or_username":"`+login+`","password":"correct-horse"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(decode[tokenBody](resp).AccessToken).NotTo(BeEmpty())
			},
			Entry("email", "anna@example.com"),
			Entry("username", "anna"),
		)

		It("answers unknown users and wrong passwords identically", func() {
			unknown := newClient().post("/api/v1/auth", `{"email_or_username":"nobody","password":"correct-horse"}`)
			wrong := newClient().post("/api/v1/auth", `{"email_or_username":"anna","password":"wrong-horse"}`)

			Expect(unknown.StatusCode).To(Equal(wrong.StatusCode))
			Expect(decode[messageBody](unknown)).To(Equal(decode[messageBody](wrong)))
		})
	})

	Describe("Session lifecycle", func() {
		It("refreshes, reads the session and logs out", func() {
			c := newClient()
			first := decode[tokenBody](c.post("/api/v1/auth/register", registration))
			firstHandle := c.refreshCookie()

			session := c.get("/api/v1/auth/session", first.AccessToken)
			Expect(session.StatusCode).To(Equal(http.StatusOK))

			resp := c.post("/api/v1/auth/refresh", `{"access_token":"`+first.AccessToken+`"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			second := decode[tokenBody](resp)
			Expect(second.AccessToken).NotTo(BeEmpty())
			Expect(c.refreshCookie()).NotTo(Equal(firstHandle))
			Expect(env.redis.Keys()).To(HaveLen(1), "the old handle is revoked on rotation")

			replay := newClient().post("/api/v1/auth/refresh",
				`{"access_token":"`+first.AccessToken+`","refresh_token":"`+firstHandle+`"}`)
			Expect(replay.StatusCode).To(Equal(http.StatusUnauthorized))

			secondHandle := c.refreshCookie()
			Expect(c.post("/api/v1/auth/logout", "").StatusCode).To(Equal(http.StatusNoContent))
			Expect(env.redis.Keys()).To(BeEmpty())
			Expect(c.refreshCookie()).To(BeEmpty(), "logout clears the cookie")

			after := newClient().post("/api/v1/auth/refresh",
				`{"access_token":"`+second.AccessToken+`","refresh_token":"`+secondHandle+`"}`)
			Expect(after.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("rejects a handle presented with another session's access token", func() {
			Expect(newClient().post("/api/v1/auth/register", registration).StatusCode).To(Equal(http.StatusOK))

			a, b := newClient(), newClient()
			pairA := decode[tokenBody](a.post("/api/v1/auth", `{"email_or_username":"anna","password":"correct-horse"}`))
			decode[tokenBody](b.post("/api/v1/auth", `{"email_or_username":"anna","password":"correct-horse"}`))

			resp := b.post("/api/v1/auth/refresh", `{"access_token":"`+pairA.AccessToken+`"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("Service", func() {
		It("reports the registry as reachable", func() {
			Expect(env.svc.Ping(ctx)).To(Succeed())
		})

		It("rotates a pair through the service API", func() {
			pair, err := env.svc.Register(ctx, auth.RegistrationInput{
				Email: "boris@example.com", Username: "boris", Password: "correct-horse",
				FirstName: "Boris", SecondName: "Sidorov",
				BirthDate: mustDate("1980-07-01"),
			})
			Expect(err).NotTo(HaveOccurred())

			next, err := env.svc.Refresh(ctx, auth.RefreshInput{
				AccessToken: pair.AccessToken, RefreshHandle: pair.RefreshHandle,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(next.RefreshHandle).NotTo(Equal(pair.RefreshHandle))
		})
	})
})
