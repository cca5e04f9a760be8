package main

import (
	"fmt"

	"github.com/taskboard/task-events-service/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
