// ./main.go
package main

import (
	"github.com/robit-man/web-scrape-service/cmd"
)

func main() {
	cmd.Execute()
}
