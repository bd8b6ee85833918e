package app

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// VERSION is <major>.<minor>.<patch>+<build date>.
// The major number changes with the log file layout, an uploader reading
// DQ-*.txt files only has to care about it. Minor counts protocol or
// configuration additions, patch counts fixes; the build date is YYYYMMDD.
// MODULE names the binary and its default config file.
const (
	VERSION = "1.0.00+20261001"
	MODULE  = "dqlog"
)

// HandleVersion is the get application version web handler.
func (app *App) HandleVersion() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request version")

		return ctx.JSON(fiber.Map{
			"version":     VERSION,
			"description": MODULE,
			"about":       Version(),
		})
	}
}

// Version is the get application version as string.
func Version() string {
	return strings.TrimSpace(MODULE + " V" + strings.Split(VERSION, "+")[0])
}
