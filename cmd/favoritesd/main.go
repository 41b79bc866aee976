// Command favoritesd serves the favorites sync HTTP API.
package main

import (
	"log"

	"github.com/patric-chuzhbe/favsync/internal/app"
)

func main() {
	theApp, err := app.New()
	if err != nil {
		log.Fatal(err)
	}
	defer theApp.Close()

	if err := theApp.Run(); err != nil {
		log.Println(err)
	}
}
