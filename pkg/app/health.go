package app

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"

	"dqlog/pkg/session"
)

// HandleHealth returns data about the health of the logger.
// output example:
//  {"State":"streaming","Devices":2,"Silent":0,"TestMode":false,
//   "NumGoroutines":7,"HeapAllocatedMB":3,"Version":"1.0.00+20261001","HostName":"baro1",...}
func (app *App) HandleHealth() fiber.Handler {
	bToMb := func(b uint64) uint64 {
		return b / 1024 / 1024
	}

	host, _ := os.Hostname()

	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request health")

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		healthData := struct {
			State           string
			Devices         int
			Silent          int
			TestMode        bool
			NumGoroutines   int
			HeapAllocatedMB uint64
			SysMemoryMB     uint64
			MQTTDropped     uint64
			Version         string
			ProgLang        string
			HostName        string
			Time            string
		}{
			State:           "discovering",
			TestMode:        app.config.TestMode,
			NumGoroutines:   runtime.NumGoroutine(),
			HeapAllocatedMB: bToMb(m.Alloc),
			SysMemoryMB:     bToMb(m.Sys),
			MQTTDropped:     app.mqtt.Dropped(),
			ProgLang:        runtime.Version(),
			Version:         VERSION,
			HostName:        host,
			Time:            time.Now().Format(time.RFC3339),
		}

		if s := app.Session(); s != nil {
			st := s.Status()
			healthData.State = st.State.String()
			healthData.Devices = len(st.Devices)
			for _, d := range st.Devices {
				if d.State == session.Recovering {
					healthData.Silent++
				}
			}
		}

		ctx.Status(http.StatusOK)
		return ctx.JSON(healthData)
	}
}
