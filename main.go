/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
// @title           Routine Gin API
// @version         1.0
// @description     Routine scheduling and execution tracking API server

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1
package main

import "github.com/mautops/routine-gin/cmd"

func main() {
	cmd.Execute()
}
