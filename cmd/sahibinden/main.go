package main

import (
	"sahibinden-scraper/cmd/sahibinden/commands"
	"sahibinden-scraper/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
