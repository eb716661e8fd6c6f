package main

import (
	"testing"

	"github.com/covidboard/covidboard/internal/app"
	_ "github.com/covidboard/covidboard/internal/testing/guard"
)

func TestWorkerSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatalf("expected test mode to be enabled")
	}
	main()
}
