package sambungo_test

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ambiyansyah-risyal/sambungo"
)

func ExampleNew() {
	client := sambungo.New(
		sambungo.WithProductInfo("ordersvc", "1.0.0"),
		sambungo.WithMaxAttempts(3),
		sambungo.WithTimeout(10 * time.Second),
	)
	defer client.Close()

	fmt.Println(client.IsValid())
	// Output: true
}

func ExampleNew_clientCredentials() {
	client := sambungo.New(
		sambungo.WithClientCredentials(
			"https://idp.example.com/oauth2/token",
			"my-client-id",
			"my-client-secret",
			"orders.read",
		),
		sambungo.WithSimpleLogger(),
	)
	defer client.Close()

	resp, err := client.Get(context.Background(), "https://api.example.com/orders")
	if err != nil {
		return
	}
	defer resp.Body.Close()
}

func ExampleWithPolicies() {
	tenantHeader := sambungo.PolicyFunc(func(pc *sambungo.PipelineContext, req *http.Request, next sambungo.Transporter) (*http.Response, error) {
		req.Header.Set("x-tenant-id", "acme")
		return next.Send(req)
	})

	client := sambungo.New(sambungo.WithPolicies(tenantHeader))
	defer client.Close()

	fmt.Println(client.IsValid())
	// Output: true
}
