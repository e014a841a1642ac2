package roomid

var adjectives = []string{
	"amber", "bold", "brisk", "calm", "clear", "cosmic", "crisp", "dusky", "eager", "early",
	"fancy", "fleet", "gentle", "glossy", "grand", "hazy", "humble", "ivory", "jolly", "keen",
	"lively", "lucid", "mellow", "misty", "nimble", "noble", "polar", "quick", "quiet", "rapid",
	"rosy", "rustic", "silver", "sleek", "snowy", "solar", "steady", "sunny", "tidy", "vivid",
}

var scenes = []string{
	"aurora", "harbor", "lagoon", "meadow", "canyon", "glacier", "island", "summit", "valley", "prairie",
	"lighthouse", "orchard", "delta", "fjord", "marsh", "plateau", "reef", "savanna", "tundra", "oasis",
	"cove", "dune", "grove", "ridge", "spring", "thicket", "bay", "crater", "mesa", "atoll",
}

var things = []string{
	"beacon", "compass", "lantern", "prism", "kite", "comet", "pixel", "falcon", "otter", "heron",
	"marlin", "lynx", "badger", "sparrow", "walrus", "panda", "koala", "raven", "tiger", "whale",
	"anchor", "banjo", "rocket", "signal", "mirror", "easel", "camera", "window", "canvas", "radio",
}
