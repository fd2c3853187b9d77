package main

import (
	"os"

	"horse.fit/jobsift/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
