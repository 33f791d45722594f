// Command audittail subscribes to the audit subject and prints decoded
// entries; intended for operators inspecting the audit stream.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	stan "github.com/nats-io/stan.go"

	"github.com/example/insurance-tariff-service/internal/domain"
)

func main() {
	clusterID := getenv("STAN_CLUSTER_ID", "tariff-cluster")
	clientID := getenv("STAN_TAIL_ID", fmt.Sprintf("tariff-audittail-%d", time.Now().UnixNano()))
	natsURL := getenv("NATS_URL", "nats://localhost:4222")
	subject := getenv("STAN_SUBJECT", "tariff-audit")

	sc, err := stan.Connect(clusterID, clientID, stan.NatsURL(natsURL))
	if err != nil {
		log.Fatalf("stan connect: %v", err)
	}
	defer sc.Close()

	sub, err := sc.Subscribe(subject, func(m *stan.Msg) {
		for _, line := range bytes.Split(m.Data, []byte("\n")) {
			var e domain.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				log.Printf("invalid audit entry: %v", err)
				continue
			}
			log.Printf("%s %s %s", e.User, e.Operation, e.Message)
		}
	}, stan.DeliverAllAvailable())
	if err != nil {
		log.Fatalf("stan subscribe: %v", err)
	}
	defer sub.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
