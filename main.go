package main

import "github.com/ShadowEagleDev/TelegramGoogleSheetsBot/cmd"

func main() {
	cmd.Execute()
}
