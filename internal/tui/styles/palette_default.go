package styles

// DefaultTheme is the baseline dark palette.
var DefaultTheme = Theme{
	Name: "default",
	Base: BaseColors{
		Background: "234",
		Foreground: "252",
		Muted:      "245",
		Accent:     "75",
		Border:     "240",
	},
	Message: MessageColors{
		Own:   "81",
		Other: "147",
	},
	Status: StatusColors{
		Unread:  "220",
		Read:    "243",
		Sending: "214",
		Error:   "203",
	},
	Chrome: ChromeColors{
		Header:       "111",
		Footer:       "110",
		SelectedItem: "75",
		Badge:        "203",
	},
}
