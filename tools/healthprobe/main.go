package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/grpcx"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	var (
		grpcAddr = flag.String("grpc-addr", getenv("GRPC_ADDR", "localhost:9097"), "availability-service grpc address")
		httpURL  = flag.String("http-url", getenv("HTTP_URL", ""), "optional base url whose /readyz is probed as well")
		service  = flag.String("service", getenv("HEALTH_SERVICE", ""), "health service name (empty for the whole server)")
		timeout  = flag.Duration("timeout", 3*time.Second, "per probe timeout")
	)
	flag.Parse()

	conn, err := grpcx.Dial(*grpcAddr, grpcx.DialOptions{Timeout: *timeout})
	if err != nil {
		fatal(err.Error())
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: *service})
	if err != nil {
		fatal("grpc health: " + err.Error())
	}
	fmt.Printf("grpc=%s\n", resp.GetStatus())
	healthy := resp.GetStatus() == healthpb.HealthCheckResponse_SERVING

	if strings.TrimSpace(*httpURL) != "" {
		ok, body, err := probeReady(ctx, strings.TrimRight(*httpURL, "/")+"/readyz")
		if err != nil {
			fatal("readyz: " + err.Error())
		}
		fmt.Printf("readyz=%s\n", body)
		healthy = healthy && ok
	}

	if !healthy {
		os.Exit(1)
	}
}

func probeReady(ctx context.Context, url string) (bool, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode == http.StatusOK, strings.TrimSpace(string(body)), nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
