// Command webhook-receiver is a development endpoint for trigger notifications.
// It verifies the signature of each request and keeps the last few in memory.
package main

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/0xGF/hyper-trigger-sub000/internal/notify"
)

const maxStored = 50

type received struct {
	At       string         `json:"at"`
	EventID  string         `json:"event_id"`
	Verified bool           `json:"verified"`
	Payload  notify.Payload `json:"payload"`
}

type receiver struct {
	secret string

	mu    sync.Mutex
	count int64
	last  []received
	since time.Time
}

func newReceiver(secret string) *receiver {
	return &receiver{secret: secret, since: time.Now().UTC()}
}

func (rc *receiver) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/hook", rc.hook)
	mux.HandleFunc("/stats", rc.stats)
	mux.HandleFunc("/reset", rc.reset)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (rc *receiver) hook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	verified := true
	if rc.secret != "" {
		verified, _ = notify.VerifyRequest(rc.secret, r.Header, body)
		if !verified {
			log.WithField("event_id", r.Header.Get(notify.HeaderEventID)).Warn("signature mismatch")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	var p notify.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	rc.mu.Lock()
	rc.count++
	rc.last = append(rc.last, received{
		At:       time.Now().UTC().Format(time.RFC3339Nano),
		EventID:  r.Header.Get(notify.HeaderEventID),
		Verified: verified && rc.secret != "",
		Payload:  p,
	})
	if len(rc.last) > maxStored {
		rc.last = rc.last[len(rc.last)-maxStored:]
	}
	n := rc.count
	rc.mu.Unlock()

	log.WithFields(log.Fields{"n": n, "trigger_id": p.TriggerID, "kind": p.Kind}).Info("notification received")
	w.WriteHeader(http.StatusNoContent)
}

func (rc *receiver) stats(w http.ResponseWriter, _ *http.Request) {
	rc.mu.Lock()
	resp := struct {
		Count int64      `json:"count"`
		Since string     `json:"since"`
		Last  []received `json:"last"`
	}{rc.count, rc.since.Format(time.RFC3339), append([]received(nil), rc.last...)}
	rc.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (rc *receiver) reset(w http.ResponseWriter, _ *http.Request) {
	rc.mu.Lock()
	rc.count = 0
	rc.last = nil
	rc.since = time.Now().UTC()
	rc.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func main() {
	addr := ":8081"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}
	secret := os.Getenv("NOTIFY_WEBHOOK_SECRET")
	if secret == "" {
		log.Warn("NOTIFY_WEBHOOK_SECRET not set; signatures are not checked")
	}

	log.WithField("addr", addr).Info("webhook-receiver listening")
	log.Fatal(http.ListenAndServe(addr, newReceiver(secret).routes()))
}
