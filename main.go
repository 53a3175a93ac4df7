/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
// @title           Approval Chain API
// @version         1.0
// @description     Multi-level approval workflow service
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey UserID
// @in header
// @name X-User-ID
package main

import "github.com/mautops/approval-chain/cmd"

func main() {
	cmd.Execute()
}
