package command

import "wnschat/internal/app/user"

// Catalog holds every chat command known to the server and client, registered in one table.
// Handlers are attached by the server engine; the catalogue itself carries no behavior.
type Catalog struct {
	*Table

	Help         *Command
	Me           *Command
	SetUserLevel *Command
	Kick         *Command
	List         *Command
	Say          *Command
	Tell         *Command
	Stats        *Command
	Ping         *Command
	Stop         *Command
	Password     *Command
	ServerName   *Command
	Sudo         *Command
	Logout       *Command
}

// NewCatalog builds the standard command catalogue. Lines without a sigil resolve to Say.
func NewCatalog() *Catalog {
	t := NewTable()

	c := &Catalog{
		Table: t,

		Help:         t.Register(New("help", "Shows help about the commands you can enter.", "/help", user.LevelUser)),
		Me:           t.Register(New("me", "Allows you to say something in third person.", "/me does some action.", user.LevelUser)),
		SetUserLevel: t.Register(New("setUserLevel", "Sets a user's authority level.", "/setUserLevel USERNAME USER|OPERATOR|ADMIN|SERVER", user.LevelAdmin)),
		Kick:         t.Register(New("kick", "Kicks a user from the server. They can still join again.", "/kick USERNAME [REASON]", user.LevelOperator)),
		List:         t.Register(New("list", "Lists the users connected to the server.", "/list", user.LevelUser)),
		Say:          t.Register(New("say", "Makes you say something, same as just typing a message.", "/say Hello World!", user.LevelUser)),
		Tell:         t.Register(New("tell", "Sends another user a message, only them and the server will receive it.", "/tell USERNAME MESSAGE", user.LevelUser)),
		Stats:        t.Register(New("stats", "Prints information about the server.", "/stats", user.LevelOperator)),
		Ping:         t.Register(New("ping", "Pings a user, who will reply after receiving the message.", "/ping USERNAME", user.LevelUser)),
		Stop:         t.Register(New("stop", "Shuts down the server.", "/stop", user.LevelAdmin)),
		Password:     t.Register(New("password", "Changes the server's password.", "/password PASSWORD or /password (removes password)", user.LevelAdmin)),
		ServerName:   t.Register(New("serverName", "Changes the server's name.", "/serverName My Awesome Server", user.LevelAdmin)),
		Sudo:         t.Register(New("sudo", "Makes another user execute a command, optionally with your permission level.", "/sudo USERNAME [useMyPermissions] /COMMAND", user.LevelOperator)),
		Logout:       t.Register(New("logout", "Logs you out of the server.", "/logout", user.LevelUser)),
	}

	t.SetFallback(c.Say)
	return c
}
