package app

import (
	"encoding/json"
	"net/http"
	"time"
)

type healthInfo struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines"`
	Alloc      string `json:"alloc"`
	Sys        string `json:"sys"`
	Time       string `json:"time"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	gor, alloc, _, sys := runtimeStats()
	info := healthInfo{
		Status:     "ok",
		Uptime:     formatDuration(time.Since(appStartedAt)),
		Goroutines: gor,
		Alloc:      formatBytes(alloc),
		Sys:        formatBytes(sys),
		Time:       time.Now().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
