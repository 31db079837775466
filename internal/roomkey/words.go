package roomkey

var subjects = []string{
	"algebra", "biology", "chemistry", "geometry", "history", "physics", "poetry", "latin", "logic", "music",
	"botany", "geology", "ethics", "drama", "calculus", "economics", "optics", "rhetoric", "statistics", "zoology",
	"anatomy", "astronomy", "civics", "grammar", "painting", "sculpture", "topology", "genetics", "ecology", "robotics",
}

var adjectives = []string{
	"curious", "bright", "quiet", "eager", "patient", "clever", "steady", "brave", "gentle", "lively",
	"careful", "cheerful", "focused", "playful", "thoughtful", "nimble", "sunny", "witty", "calm", "bold",
}

var animals = []string{
	"otter", "owl", "panda", "koala", "fox", "hedgehog", "beaver", "dolphin", "penguin", "toucan",
	"badger", "heron", "lynx", "marmot", "narwhal", "ocelot", "puffin", "quokka", "raven", "walrus",
}

var objects = []string{
	"chalk", "easel", "globe", "lantern", "compass", "notebook", "pencil", "ruler", "telescope", "prism",
	"abacus", "atlas", "beaker", "crayon", "inkwell", "magnet", "sextant", "slate", "stencil", "tuning-fork",
}
